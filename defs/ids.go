package defs

// Tid_t identifies a task (thread). The first thread of a process shares
// its id with the process's thread-group id (spec.md §3, Task).
type Tid_t int

// Pid_t identifies a thread group (a process, in the POSIX sense).
type Pid_t int

// Portid_t identifies an IPC port (spec.md §3, Port).
type Portid_t int

// Shmid_t identifies a shared-memory region.
type Shmid_t int

// InitPid is the well-known id of the init task; orphans are reparented
// to it per spec.md §4.3 ("Termination").
const InitPid Pid_t = 1

// NoTask is the zero value used for "no waiting receiver" (spec.md §3,
// Port: "one waiting-receiver id (0 if none)").
const NoTask Tid_t = 0
