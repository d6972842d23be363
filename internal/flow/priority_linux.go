package flow

import "golang.org/x/sys/unix"

// On Linux, setpriority(2) with PRIO_PROCESS and a thread id applies to that
// thread only. The caller has locked its goroutine to the thread.
func setThreadPriority(nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
