package main

import "github.com/ValentinKolb/unixhttp/cmd"

func main() {
	cmd.Execute()
}
