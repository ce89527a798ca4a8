// Package semboot bootstraps System V semaphore sets shared by independent
// processes, without a designated setup step.
//
// Every participant makes the same call. Whoever creates the set first
// initializes it; everyone else waits for that initialization to finish
// and then uses the same set.
//
// # Keys
//
// Processes agree on a set through a Key. KeyFromPath derives one from an
// existing path and a project byte with the same layout as ftok(3), so the
// result matches what a C program computes for the same inputs:
//
//	key, err := semboot.KeyFromPath("/var/run/myapp", 'J')
//
// # Create or Join
//
// AcquireOrJoin resolves the race through exclusive creation in the kernel:
//
//	set, err := semboot.AcquireOrJoin(key, 1)
//	if err != nil {
//	    return err
//	}
//	defer set.Close()
//
//	set.Acquire(0)
//	// critical section
//	set.Release(0)
//
// The winner sets every semaphore to its initial value (1 unless
// WithInitialValue says otherwise) and then raises an extra, reserved ready
// semaphore at index n. The others attach to the existing set and poll the
// ready semaphore, once per WithPollInterval for at most WithMaxAttempts
// checks, failing with ErrInitializationTimeout if it never goes up. The
// ready semaphore is never decremented and is not reachable through the
// handle.
//
// If the winner fails after creating the set but before raising the ready
// semaphore, it removes the set and returns a *PartialInitError. A later
// call then takes the create path again instead of waiting on a set that
// will never become ready.
//
// # Removal
//
// Closing a handle never destroys the set, since other processes share it.
// Remove (or (*SemaphoreSet).Remove) destroys it explicitly and returns
// ErrNotFound when there is nothing to remove. Removing a set while other
// processes are blocked in Acquire wakes them with ErrNotFound; coordinating
// that is up to the caller.
//
// # Participants
//
// RunParticipants starts several copies of a program at once, each of which
// calls Participate and ReportToParent. Reports travel back as
// length-prefixed MessagePack frames on an inherited pipe. The semdemo
// command's race subcommand uses this to show exactly one process creating
// the set.
//
// # Platform Support
//
// The System V shim covers Linux on amd64 and arm64. Elsewhere the
// operations return ErrNotSupported.
package semboot
