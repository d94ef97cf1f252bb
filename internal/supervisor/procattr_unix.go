//go:build unix

package supervisor

import "syscall"

// workerProcAttr puts the worker in its own process group so a Ctrl-C in
// the launching terminal does not reach it.
func workerProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
