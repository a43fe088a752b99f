// Package automation provides the rule engine for homecore.
//
// An automation pairs triggers with optional conditions and an ordered
// action list. Triggers are ORed, conditions are ANDed.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                   │
//	│  ┌──────────────┐    ┌──────────────┐                 │
//	│  │  FileStore   │    │  scheduler   │ robfig/cron     │
//	│  │ (store.go)   │    │(scheduler.go)│ cron/time/      │
//	│  └──────────────┘    └──────────────┘ interval        │
//	│        ▲                    │                         │
//	│  bridge.Event ──▶ trigger match ──▶ fire              │
//	│                                      │                │
//	│  ┌──────────────────────────────────────────────┐     │
//	│  │  Firing (own goroutine)                      │     │
//	│  │  1. Evaluate conditions (conditions.go)      │     │
//	│  │  2. Walk actions recursively (actions.go)    │     │
//	│  │  3. Report Firing to the observer            │     │
//	│  └──────────────────────────────────────────────┘     │
//	└───────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Automation: id, name, enabled, triggers, conditions, actions
//   - Trigger, Condition, Action: tagged unions keyed by "type"
//   - Patch: partial update; the id cannot be patched
//   - Firing: report of one run whose conditions passed
//   - Engine: owns the rule set, its store and its scheduler
//
// # Persistence
//
// The rule set lives in one JSON document, {"automations": [...]}, rewritten
// atomically after every create, update and remove. A missing file is an
// empty rule set; a file that does not parse stops startup.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Every mutation re-arms all scheduled
// triggers under the engine lock.
//
// # Usage
//
//	engine := automation.New(automation.NewFileStore(cfg.Automation.File), br,
//	    automation.WithLogger(log),
//	    automation.WithLocation(loc),
//	    automation.WithObserver(onFiring),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Destroy()
package automation
