//go:build amd64

package seccomp

// Syscall numbers from arch/x86/entry/syscalls/syscall_64.tbl. Never change.
const (
	numOpenat           int64 = 257
	numReadlinkat       int64 = 267
	numFaccessat        int64 = 269
	numUnlinkat         int64 = 263
	numConnect          int64 = 42
	numExecve           int64 = 59
	numInotifyAddWatch  int64 = 254
	numMkdirat          int64 = 258
	numGetdents64       int64 = 217
	numPtrace           int64 = 101
	numClockSettime     int64 = 227
	numClockGettime     int64 = 228
	numGettimeofday     int64 = 96
	numSettimeofday     int64 = 164

	numNewfstatat int64 = 262
	numGetuid     int64 = 102
	numGetgid     int64 = 104
	numGeteuid    int64 = 107
	numGetegid    int64 = 108
	numGetresuid  int64 = 118
	numGetresgid  int64 = 120
)

func trappedBaseline() []int64 {
	return []int64{
		numOpenat, numReadlinkat, numFaccessat, numUnlinkat, numConnect,
		numExecve, numInotifyAddWatch, numMkdirat, numGetdents64, numPtrace,
		numClockSettime, numClockGettime, numGettimeofday, numSettimeofday,
	}
}

func trappedExtra() []int64 {
	return []int64{numNewfstatat, numGetuid, numGetgid, numGeteuid, numGetegid, numGetresuid, numGetresgid}
}
