package main

import (
	"context"
	"os"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
