package main

import (
	"time"

	"github.com/DoyleJ11/lab-whiteboard/internal/client"
	"go.uber.org/zap"
)

// printer is a headless renderer: it logs what a screen would show.
type printer struct {
	logger *zap.Logger
	items  int
	conns  int
	people int
	seen   map[string]time.Time
}

func newPrinter(logger *zap.Logger) *printer {
	return &printer{logger: logger, seen: make(map[string]time.Time)}
}

func (p *printer) RenderScene(v client.SceneView) {
	if len(v.Items) == p.items && len(v.Connections) == p.conns {
		return
	}
	p.items, p.conns = len(v.Items), len(v.Connections)
	p.logger.Info("scene", zap.Int("items", p.items), zap.Int("connections", p.conns))
}

func (p *printer) RenderRoster(v client.RosterView) {
	for _, b := range v.Badges {
		if p.seen[b.UserID].Equal(b.Shown) {
			continue
		}
		p.seen[b.UserID] = b.Shown
		p.logger.Info("activity", zap.String("user", b.Username), zap.String("action", b.Action))
	}
	if len(v.Entries) == p.people {
		return
	}
	p.people = len(v.Entries)
	names := make([]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		names = append(names, e.Username)
	}
	p.logger.Info("roster", zap.Strings("users", names))
}

type statusFunc func(client.Lifecycle)

func (f statusFunc) OnStatus(l client.Lifecycle) { f(l) }

type notifyFunc func(client.Notice)

func (f notifyFunc) Notify(n client.Notice) { f(n) }
