/*
Copyright © 2025 tieubaoca
*/
package main

import (
	"github.com/joho/godotenv"
	"github.com/tieubaoca/knowledge-be/cmd"
)

func main() {
	cmd.Execute()
}

func init() {
	// .env is optional, the environment may already carry the settings
	_ = godotenv.Load()
}
