package main

import (
	"os"

	"github.com/estoqa/catalog/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
