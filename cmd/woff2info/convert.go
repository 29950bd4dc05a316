package main

import (
	"fmt"
	"os"

	"github.com/wofftools/woff2dec"
)

type Convert struct {
	Output string `short:"o" desc:"Output filename"`
	Input  string `index:"0" desc:"Input WOFF2 file"`
}

func (cmd *Convert) Run() error {
	b, err := os.ReadFile(cmd.Input)
	if err != nil {
		return err
	}

	sfnt, err := woff2.ParseWOFF2(b)
	if err != nil {
		return err
	}

	output := cmd.Output
	if output == "" {
		output = cmd.Input + ".ttf"
	}
	if err := os.WriteFile(output, sfnt, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", output, len(sfnt))
	return nil
}
