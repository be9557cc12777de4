package main

// General API documentation for swaggo. Run `swag init -g cmd/portraitd/docs.go -o docs` to regenerate.
//
// @title           portraitd API
// @version         1.0
// @description     Portrait and token image generation for tabletop entities.
//
// @BasePath  /
//
// @schemes http
