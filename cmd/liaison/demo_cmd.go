package main

import (
	"encoding/json"
	"fmt"

	"github.com/cnx2016/liaison"
)

// demo runs a handful of queries against an in-process frontend and backend layer pair and
// prints the round trip results.
func demo(args []string) error {
	back, err := demoLayer()
	if err != nil {
		return err
	}
	front := liaison.New("demo-front", back)
	queries := []string{
		`{"Greeter=>": {"motd=>": true}}`,
		`{"Greeter=>": {"greet=>": {"()": ["demo"]}}}`,
		`{"Clock=>": {"getTime=>": {"()": []}}}`,
		`{"introspect=>": {"()": []}}`,
	}
	for _, raw := range queries {
		var q interface{}
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return err
		}
		fmt.Printf("> %s\n", raw)
		res, err := front.SendQuery(q)
		if err != nil {
			fmt.Printf("! %v\n\n", err)
			continue
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Printf("= %v\n\n", res)
			continue
		}
		fmt.Printf("= %s\n\n", out)
	}
	return nil
}
