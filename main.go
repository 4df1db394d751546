package main

import "github.com/frahmantamala/crypto-gateway/cmd"

func main() {
	cmd.Execute()
}
