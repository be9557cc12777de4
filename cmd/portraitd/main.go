// portraitd generates character portraits and token images through the
// Runware image API and serves the generation workflow over HTTP.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
