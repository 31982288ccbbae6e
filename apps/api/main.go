package main

import (
	"flag"
	"log"
	_ "net/http/pprof"
)

func main() {
	di := flag.String("di", "dig", "how dependencies are wired: dig | manual")
	graph := flag.String("graph", "", "write the dig dependency graph (DOT) to this file and exit")
	flag.Parse()

	switch *di {
	case "dig":
		startWithDig(*graph)
	case "manual":
		startManual()
	default:
		log.Fatalf("unknown -di %q", *di)
	}
}
