package main

import "github.com/Brownie44l1/effnet-api/internal/bootstrap"

func main() {
	bootstrap.Run()
}
