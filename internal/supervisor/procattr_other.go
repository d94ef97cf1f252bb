//go:build !unix

package supervisor

import "syscall"

func workerProcAttr() *syscall.SysProcAttr {
	return nil
}
