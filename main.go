package main

import (
	"os"

	"aurmake/internal/aurmake"
)

func main() {
	os.Exit(aurmake.Main())
}
