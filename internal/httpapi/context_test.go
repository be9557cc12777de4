package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJoinContexts_CancelsWhenEitherEnds(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	b := context.Background()
	ctx, cancel := joinContexts(a, b)
	defer cancel()
	cancelA()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("joined context not canceled")
	}
}

func TestGenerationContext_ShutdownAndTimeout(t *testing.T) {
	base, shutdown := context.WithCancel(context.Background())
	SetBaseContext(base)
	defer SetBaseContext(nil)

	r := httptest.NewRequest(http.MethodPost, "/dialogs/x/generate", nil)
	ctx, cancel := generationContext(r)
	defer cancel()
	if clientGone(r) {
		t.Fatalf("client reported gone before shutdown")
	}
	shutdown()
	<-ctx.Done()
	if !clientGone(r) {
		t.Fatalf("shutdown not observed")
	}

	SetBaseContext(nil)
	SetGenerateTimeoutSeconds(1)
	defer SetGenerateTimeoutSeconds(0)
	ctx, cancel = generationContext(r)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("no deadline with timeout configured")
	}
}
