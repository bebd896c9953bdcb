package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/reader"
	"github.com/mattn/go-tty"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func scanKeys(ctx context.Context, r *reader.Reader) {
	tty, err := tty.Open()
	if err != nil {
		log.WithError(err).Warn("tty.Open, key commands disabled")
		return
	}
	defer tty.Close()

	for ctx.Err() == nil {
		k, err := tty.ReadRune()
		if err != nil {
			log.WithError(err).Warn("tty.ReadRune")
			return
		}
		h, ok := keyMap[k]
		if !ok {
			continue
		}
		h.cb(r)
	}
}

type kmt = map[rune]struct {
	cb   func(r *reader.Reader)
	desc string
}

var keyMap kmt

func init() {
	keyMap = kmt{
		'f': {
			cb: func(r *reader.Reader) {
				fmt.Println(r.State())
			},
			desc: "Get current state",
		},
		't': {
			cb: func(r *reader.Reader) {
				fmt.Println(strings.Join(r.Tracked(), "\n"))
			},
			desc: "List tracked media playlists",
		},
		'?': {
			desc: "Help",
			cb: func(*reader.Reader) {
				keys := maps.Keys(keyMap)
				slices.Sort(keys)
				for _, k := range keys {
					fmt.Printf("%s\t%s\n", string(k), keyMap[k].desc)
				}
			},
		},
	}
}
