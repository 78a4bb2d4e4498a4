//go:build arm64

package seccomp

// Syscall numbers from the generic 64-bit table arm64 uses
// (include/uapi/asm-generic/unistd.h). Never change.
const (
	numOpenat          int64 = 56
	numReadlinkat      int64 = 78
	numFaccessat       int64 = 48
	numUnlinkat        int64 = 35
	numConnect         int64 = 203
	numExecve          int64 = 221
	numInotifyAddWatch int64 = 27
	numMkdirat         int64 = 34
	numGetdents64      int64 = 61
	numPtrace          int64 = 117
	numClockSettime    int64 = 112
	numClockGettime    int64 = 113
	numGettimeofday    int64 = 169
	numSettimeofday    int64 = 170

	numNewfstatat int64 = 79
	numGetuid     int64 = 174
	numGetgid     int64 = 176
	numGeteuid    int64 = 175
	numGetegid    int64 = 177
	numGetresuid  int64 = 148
	numGetresgid  int64 = 150
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
