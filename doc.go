// Package demo05 is the core of a real-time demo engine: a message-driven
// runtime that loads, hot-reloads and names scene resources while a
// synchronizer advances playback against the audio clock.
//
// # Architecture
//
// The core is split into small systems connected by one typed in-process
// message bus:
//
//   - bus: typed pub/sub with a topology frozen at startup. Systems register
//     their subscriptions during the init phase; after Seal no registration
//     is possible and dispatch is lock-free.
//   - entity: the resource pipeline. Sources (files, embedded data) are
//     dispatched by extension and content probes to a representation, parsed
//     off the render path on a worker pool, installed under a canonical name
//     with a monotonic generation counter, and watched for changes.
//   - timeline: the playback state machine. It turns the audio clock into
//     discrete ticks and publishes every advancement.
//   - audio, graphics: the collaborator systems. Audio owns the monotonic
//     playback clock; graphics caches entity generations and refreshes
//     snapshots per frame. Their loops belong to the embedder.
//   - runtime: assembly and ordered lifecycle (Initialize, Start, Stop in
//     reverse), plus the metrics and health endpoints.
//
// The message catalog (entity.loaded, entity.reloaded, entity.replaced,
// entity.load-failed, step.advanced) is the wire contract between systems
// and stays stable for external integrations.
//
// # Failure model
//
// Startup is strict: a missing representation, an invalid configuration or
// an absent audio clock aborts the process. Everything after startup is
// forgiving: parse errors, unreadable sources and watcher failures are
// published as entity.load-failed and the demo keeps running with the last
// good entities installed.
package demo05
