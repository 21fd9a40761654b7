package sysmon

import "os"

func currentPID() int {
	return os.Getpid()
}
