package main

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"

	"github.com/cnx2016/liaison"
	"github.com/cnx2016/liaison/hub"
	"github.com/cnx2016/liaison/hub/wshub"
	"github.com/cnx2016/liaison/log"
)

func repl(args []string) error {
	front, err := connectFront()
	if err != nil {
		return err
	}
	lin := liner.NewLiner()
	defer lin.Close()
	lin.SetMultiLineMode(true)
	var got string
	for i := 0; ; i++ {
		if i == 0 {
			got, err = lin.PromptWithSuggestion("> ", `{"Clock=>": {"getTime=>": {"()": []}}}`, 1)
		} else {
			got, err = lin.Prompt("> ")
		}
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			stdlog.Printf("unexpected error reading prompt: %v", err)
			continue
		}
		if strings.TrimSpace(got) == "" {
			continue
		}
		var q interface{}
		err = json.Unmarshal([]byte(got), &q)
		if err != nil {
			stdlog.Printf("error parsing %s: %v", got, err)
			continue
		}
		lin.AppendHistory(got)
		res, err := front.SendQuery(q)
		if err != nil {
			stdlog.Printf("error resolving %s: %v", got, err)
			continue
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Printf("= %v\n\n", res)
			continue
		}
		fmt.Printf("= %s\n\n", out)
	}
}

// connectFront returns a frontend layer whose parent is either an in-process demo layer or a
// remote hub reached over a websocket.
func connectFront() (*liaison.Layer, error) {
	if !*remoteFlag {
		back, err := demoLayer()
		if err != nil {
			return nil, err
		}
		return liaison.New("repl", back), nil
	}
	logger := log.Root
	h := hub.NewHub()
	cli := wshub.NewClient("ws://" + *addrFlag + "/hub")
	rem := hub.NewRemote("demo", h, logger)
	route := hub.RouterFunc(func(m *hub.Msg) {
		switch m.Subj {
		case hub.SubjQuery:
			cli.Chan() <- m
		case hub.SubjResult, hub.SubjErr:
			rem.Chan() <- m
		}
	})
	go h.Run(route)
	go func() {
		if err := cli.Connect(h.Chan()); err != nil {
			logger.Error("hub connection failed", "err", errors.Wrap(err, "connect"))
		}
	}()
	return liaison.New("repl", rem), nil
}
