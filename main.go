package main

import "github.com/Aakash-1803/Nft-floor-price-cardano/cmd"

func main() {
	cmd.Execute()
}
