package main

import (
	"flag"
	"fmt"
	"log"
)

const usage = `usage: liaison [-addr=<host:port>] <command> [<args>]

Configuration flags:

   -addr       The address the serve command listens on and the repl command connects to.

Server commands
   serve       Host the demo registry layer on a websocket hub

Client commands
   repl        Run a read-eval-print-loop sending queries to the demo layer.
               Queries are JSON values using the arrow key syntax, for example
               {"Clock=>": {"getTime=>": {"()": []}}}. With -remote the queries
               go to a served hub, otherwise an in-process layer answers.
   intro       Print the exposed surface of the demo registry layer
   demo        Run a scripted in-process query round trip

Other commands
   help        Display help message
`

var (
	addrFlag   = flag.String("addr", "localhost:8090", "hub address")
	remoteFlag = flag.Bool("remote", false, "connect the repl to a served hub")
)

func main() {
	flag.Parse()
	log.SetFlags(0)
	args := flag.Args()
	if len(args) == 0 {
		log.Printf("missing command\n\n")
		fmt.Print(usage)
		return
	}
	args = args[1:]
	var err error
	switch cmd := flag.Arg(0); cmd {
	case "serve":
		err = serve(args)
	case "repl":
		err = repl(args)
	case "intro":
		err = intro(args)
	case "demo":
		err = demo(args)
	case "help":
		fmt.Print(usage)
	default:
		log.Printf("unknown command: %s\n\n", cmd)
		fmt.Print(usage)
	}
	if err != nil {
		log.Fatalf("%s error: %+v\n", flag.Arg(0), err)
	}
}
