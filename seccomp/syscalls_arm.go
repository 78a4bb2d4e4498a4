//go:build arm

package seccomp

// Syscall numbers from arch/arm/tools/syscall.tbl (EABI). Never change.
const (
	numOpenat          int64 = 322
	numReadlinkat      int64 = 332
	numFaccessat       int64 = 334
	numUnlinkat        int64 = 328
	numConnect         int64 = 283
	numExecve          int64 = 11
	numInotifyAddWatch int64 = 317
	numMkdirat         int64 = 323
	numGetdents64      int64 = 217
	numPtrace          int64 = 26
	numClockSettime    int64 = 262
	numClockGettime    int64 = 263
	numGettimeofday    int64 = 78
	numSettimeofday    int64 = 79

	numOpen        int64 = 5
	numReadlink    int64 = 85
	numAccess      int64 = 33
	numStat        int64 = 106
	numFstat       int64 = 108
	numLstat       int64 = 107
	numUname       int64 = 122
	numIoprioSet   int64 = 314
	numSysinfo     int64 = 116
	numSocket      int64 = 281
	numIoctl       int64 = 54
	numPrctl       int64 = 172
	numGetuid32    int64 = 199
	numGetgid32    int64 = 200
	numGeteuid32   int64 = 201
	numGetegid32   int64 = 202
	numFstatat64   int64 = 327
)

func trappedBaseline() []int64 {
	return []int64{
		numOpenat, numReadlinkat, numFaccessat, numUnlinkat, numConnect,
		numExecve, numInotifyAddWatch, numMkdirat, numGetdents64, numPtrace,
		numClockSettime, numClockGettime, numGettimeofday, numSettimeofday,
	}
}

func trappedExtra() []int64 {
	return []int64{
		numOpen, numReadlink, numAccess, numStat, numFstat, numLstat, numUname,
		numIoprioSet, numSysinfo, numSocket, numIoctl, numPrctl, numGetuid32,
		numGetgid32, numGeteuid32, numGetegid32, numFstatat64,
	}
}
