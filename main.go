package main

import (
	"fmt"

	"github.com/kestrel-games/arcade-gateway/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
