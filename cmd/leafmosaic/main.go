package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
)

func printBanner() {
	figure1 := figure.NewFigure("Leaf", "isometric1", true)
	figure2 := figure.NewFigure("Mosaic", "isometric1", true)
	bannercolor.Green(figure1.String())
	bannercolor.Green(figure2.String())
	fmt.Println()
}

func main() {
	Execute()
}
