package main

import "github.com/edgeflare/pgapi/cmd/pgapi"

func main() {
	pgapi.Main()
}
