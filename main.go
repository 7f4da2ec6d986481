package main

import (
	"os"

	"marketplace-relay/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
