// Package control models the control-plane boundary described in
// SPEC_FULL.md §3.x/§6.x: the Auth/Tasks/Group wire shapes a real control
// client would speak, and a Watcher abstraction the rest of the agent
// consumes without caring whether events come from a live connection or a
// fixture.
//
// Grounded in original_source/synapi/src/*.rs for the wire shapes and
// original_source/src/agent.rs for the event stream this package produces.
package control

import (
	"time"

	"github.com/kentik/synthetics-agent/internal/task"
)

// AuthStatus is the numeric control-plane authentication result, decoded
// verbatim from {0,1,3} per SPEC_FULL.md §3.x/§6.
type AuthStatus int

// Values for AuthStatus, matching the wire's numeric codes exactly.
const (
	AuthOk   AuthStatus = 0
	AuthWait AuthStatus = 1
	AuthDeny AuthStatus = 3
)

// Auth is the control plane's response to an agent's registration attempt:
// Ok carries the agent and session identifiers a real client would attach
// to subsequent requests, Wait asks the caller to retry later, and Deny
// means registration will never succeed with the current credentials.
type Auth struct {
	Status  AuthStatus
	Agent   uint64
	Session string
}

// DecodeAuth maps a numeric status plus its payload fields to an Auth,
// per SPEC_FULL.md §3.x ("decoded from numeric status {0,1,3}").
func DecodeAuth(status int, agent uint64, session string) Auth {
	switch AuthStatus(status) {
	case AuthOk:
		return Auth{Status: AuthOk, Agent: agent, Session: session}
	case AuthWait:
		return Auth{Status: AuthWait}
	default:
		return Auth{Status: AuthDeny}
	}
}

// TaskState is the per-task lifecycle tag the control plane attaches to
// every task in a Tasks event, per spec.md §3/§4.7 and
// original_source/synapi/src/tasks.rs's State enum. A Tasks event is a
// delta, not a full resend: only tasks actually mentioned change, tagged
// with which change applies.
type TaskState int

// Values for TaskState, matching the wire's CREATED/UPDATED/DELETED
// strings exactly. TaskCreated is the zero value so a task.json fixture
// that omits "state" (as a fully-static fixture naturally does) decodes as
// a normal insert.
const (
	TaskCreated TaskState = iota
	TaskUpdated
	TaskDeleted
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskUpdated:
		return "updated"
	case TaskDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// TaskSpec is one task the control plane assigned, its identity, lifecycle
// state, and the decoded configuration the task loop runs. Config is
// meaningless when State is TaskDeleted — the control plane has nothing
// left to say about a task it is removing beyond its ID.
type TaskSpec struct {
	TaskID  uint64
	TestID  uint64
	Network task.Network
	State   TaskState
	Config  task.Config
}

// Group is the unit the control plane ships tasks in: one company/device
// pair and the tasks assigned to it, per SPEC_FULL.md §3.x.
type Group struct {
	Company uint64
	Device  uint64 // Kentik device ID
	Tasks   []TaskSpec
}

// Tasks is the task-assignment event payload, timestamped: groups of tasks,
// each task tagged with the lifecycle State to apply to it. Tasks it does
// not mention are left as they are.
type Tasks struct {
	Timestamp time.Time
	Groups    []Group
}

// EventKind tags which variant of Event is populated.
type EventKind int

// Values for EventKind, matching §4.7/§6 ("Tasks | Reset | Report").
const (
	EventTasks EventKind = iota
	EventReset
	EventReport
)

// Event is the one thing a Watcher ever produces: a batch of per-task
// lifecycle changes, a request to drop everything and start clean, or a request to
// publish a status snapshot. Modeled as Kind + optional payload per the
// same struct-of-variants idiom as task.Record/task.Config.
type Event struct {
	Kind  EventKind
	Tasks *Tasks
}
