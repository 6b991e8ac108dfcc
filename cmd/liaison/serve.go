package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/cnx2016/liaison"
	"github.com/cnx2016/liaison/hub"
	"github.com/cnx2016/liaison/hub/wshub"
	"github.com/cnx2016/liaison/log"
)

func serve(args []string) error {
	back, err := demoLayer()
	if err != nil {
		return err
	}
	logger := log.Root
	h := hub.NewHub()
	services := hub.Services{hub.SubjQuery: &hub.LayerService{Layer: back}}
	handle := hub.RouterFunc(func(m *hub.Msg) {
		if err := services.Handle(m, h); err != nil {
			logger.Error("query failed", "err", err)
		}
	})
	go h.Run(hub.NewMatchFilter(handle, hub.SubjQuery))
	http.HandleFunc("/hub", wshub.Serve(h, logger))
	logger.Debug("listening", "addr", *addrFlag)
	err = http.ListenAndServe(*addrFlag, nil)
	return errors.Wrap(err, "serve hub")
}

func intro(args []string) error {
	back, err := demoLayer()
	if err != nil {
		return err
	}
	res := back.Introspect(&liaison.IntroOpts{ExposedOnly: true})
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal introspection")
	}
	fmt.Println(string(out))
	return nil
}
