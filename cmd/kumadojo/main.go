package main

import (
	"github.com/kumadojo/api/app"
)

func main() {
	app.New(nil).Run()
}
