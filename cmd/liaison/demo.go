package main

import (
	"fmt"
	"time"

	"github.com/cnx2016/liaison"
	"github.com/cnx2016/liaison/expo"
	"github.com/cnx2016/liaison/pol"
	"github.com/cnx2016/liaison/qry"
)

// demoLayer builds the registry the other commands serve and query. It hosts a clock, a
// greeter and a note class whose instances callers can create and edit.
func demoLayer() (*liaison.Layer, error) {
	l := liaison.New("demo", nil)
	l.Invoker = &qry.Backend{}

	clock := liaison.NewClass()
	clock.Bind("getTime", func(recv *liaison.Item, args []interface{}) (interface{}, error) {
		return time.Now(), nil
	})
	clock.Bind("reset", func(recv *liaison.Item, args []interface{}) (interface{}, error) {
		return nil, fmt.Errorf("the demo clock cannot be reset")
	})
	err := expose(clock, expo.KindMethod, map[string]expo.Perm{
		"getTime": {Call: true},
	})
	if err != nil {
		return nil, err
	}

	greeter := liaison.NewClass()
	greeter.Define("motd", "welcome to the demo registry")
	greeter.Bind("greet", func(recv *liaison.Item, args []interface{}) (interface{}, error) {
		name := "there"
		if len(args) > 0 {
			if s, ok := args[0].(string); ok && s != "" {
				name = s
			}
		}
		return fmt.Sprintf("hello %s", name), nil
	})
	err = expose(greeter, expo.KindField, map[string]expo.Perm{
		"motd": {Get: true},
	})
	if err != nil {
		return nil, err
	}
	err = expose(greeter, expo.KindMethod, map[string]expo.Perm{
		"greet": {Call: true},
	})
	if err != nil {
		return nil, err
	}

	note := liaison.NewClass()
	note.Define("text", "")
	note.Define("pinned", false)
	err = expose(note, expo.KindField, map[string]expo.Perm{
		"text":   {Get: true, Set: true},
		"pinned": {Get: true, Set: "editor"},
	})
	if err != nil {
		return nil, err
	}

	err = l.Register(map[string]*liaison.Item{
		"Clock":   clock,
		"Greeter": greeter,
		"Note":    note,
	})
	if err != nil {
		return nil, err
	}

	rules := pol.NewRules().AddRole("editor", false).AddMember("demo", "editor")
	l.Delegate = pol.NewResolver(rules, "demo")
	return l, nil
}

func expose(it *liaison.Item, kind expo.Kind, perms map[string]expo.Perm) error {
	for name, p := range perms {
		if err := it.Expose(name, kind, p); err != nil {
			return err
		}
	}
	return nil
}
