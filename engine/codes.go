package engine

import (
	"fmt"
	"sync"
)

// Raw codes the binding itself needs to recognize or raise.
const (
	codeError     = 1
	codeBusy      = 5
	codeInterrupt = 9
	codeAuth      = 23
)

// codeNames maps raw engine result codes, including extended codes, to their
// symbolic names.
var codeNames = map[int]string{
	0:   "SQLITE_OK",
	1:   "SQLITE_ERROR",
	2:   "SQLITE_INTERNAL",
	3:   "SQLITE_PERM",
	4:   "SQLITE_ABORT",
	5:   "SQLITE_BUSY",
	6:   "SQLITE_LOCKED",
	7:   "SQLITE_NOMEM",
	8:   "SQLITE_READONLY",
	9:   "SQLITE_INTERRUPT",
	10:  "SQLITE_IOERR",
	11:  "SQLITE_CORRUPT",
	12:  "SQLITE_NOTFOUND",
	13:  "SQLITE_FULL",
	14:  "SQLITE_CANTOPEN",
	15:  "SQLITE_PROTOCOL",
	16:  "SQLITE_EMPTY",
	17:  "SQLITE_SCHEMA",
	18:  "SQLITE_TOOBIG",
	19:  "SQLITE_CONSTRAINT",
	20:  "SQLITE_MISMATCH",
	21:  "SQLITE_MISUSE",
	22:  "SQLITE_NOLFS",
	23:  "SQLITE_AUTH",
	24:  "SQLITE_FORMAT",
	25:  "SQLITE_RANGE",
	26:  "SQLITE_NOTADB",
	27:  "SQLITE_NOTICE",
	28:  "SQLITE_WARNING",
	100: "SQLITE_ROW",
	101: "SQLITE_DONE",

	256: "SQLITE_OK_LOAD_PERMANENTLY",

	261: "SQLITE_BUSY_RECOVERY",
	517: "SQLITE_BUSY_SNAPSHOT",

	262: "SQLITE_LOCKED_SHAREDCACHE",

	264:  "SQLITE_READONLY_RECOVERY",
	520:  "SQLITE_READONLY_CANTLOCK",
	776:  "SQLITE_READONLY_ROLLBACK",
	1032: "SQLITE_READONLY_DBMOVED",

	266:  "SQLITE_IOERR_READ",
	522:  "SQLITE_IOERR_SHORT_READ",
	778:  "SQLITE_IOERR_WRITE",
	1034: "SQLITE_IOERR_FSYNC",
	1290: "SQLITE_IOERR_DIR_FSYNC",
	1546: "SQLITE_IOERR_TRUNCATE",
	1802: "SQLITE_IOERR_FSTAT",
	2058: "SQLITE_IOERR_UNLOCK",
	2314: "SQLITE_IOERR_RDLOCK",
	2570: "SQLITE_IOERR_DELETE",
	2826: "SQLITE_IOERR_BLOCKED",
	3082: "SQLITE_IOERR_NOMEM",
	3338: "SQLITE_IOERR_ACCESS",
	3594: "SQLITE_IOERR_CHECKRESERVEDLOCK",
	3850: "SQLITE_IOERR_LOCK",
	4106: "SQLITE_IOERR_CLOSE",
	4362: "SQLITE_IOERR_DIR_CLOSE",
	4618: "SQLITE_IOERR_SHMOPEN",
	4874: "SQLITE_IOERR_SHMSIZE",
	5130: "SQLITE_IOERR_SHMLOCK",
	5386: "SQLITE_IOERR_SHMMAP",
	5642: "SQLITE_IOERR_SEEK",
	5898: "SQLITE_IOERR_DELETE_NOENT",
	6154: "SQLITE_IOERR_MMAP",
	6410: "SQLITE_IOERR_GETTEMPPATH",
	6666: "SQLITE_IOERR_CONVPATH",
	6922: "SQLITE_IOERR_VNODE",
	7178: "SQLITE_IOERR_AUTH",

	267: "SQLITE_CORRUPT_VTAB",

	270:  "SQLITE_CANTOPEN_NOTEMPDIR",
	526:  "SQLITE_CANTOPEN_ISDIR",
	782:  "SQLITE_CANTOPEN_FULLPATH",
	1038: "SQLITE_CANTOPEN_CONVPATH",

	516: "SQLITE_ABORT_ROLLBACK",

	275:  "SQLITE_CONSTRAINT_CHECK",
	531:  "SQLITE_CONSTRAINT_COMMITHOOK",
	787:  "SQLITE_CONSTRAINT_FOREIGNKEY",
	1043: "SQLITE_CONSTRAINT_FUNCTION",
	1299: "SQLITE_CONSTRAINT_NOTNULL",
	1555: "SQLITE_CONSTRAINT_PRIMARYKEY",
	1811: "SQLITE_CONSTRAINT_TRIGGER",
	2067: "SQLITE_CONSTRAINT_UNIQUE",
	2323: "SQLITE_CONSTRAINT_VTAB",
	2579: "SQLITE_CONSTRAINT_ROWID",

	283: "SQLITE_NOTICE_RECOVER_WAL",
	539: "SQLITE_NOTICE_RECOVER_ROLLBACK",

	284: "SQLITE_WARNING_AUTOINDEX",

	279: "SQLITE_AUTH_USER",
}

// CodeName resolves a raw engine result code to its symbolic name. Unknown
// codes render as UNKNOWN_SQLITE_ERROR_<n> so they stay stable for callers.
func CodeName(rawCode int) string {
	if name, ok := codeNames[rawCode]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_SQLITE_ERROR_%d", rawCode)
}

var (
	codeNumbersOnce sync.Once
	codeNumbers     map[string]int
)

// RawCode resolves a symbolic code name back to its raw numeric code.
// Unrecognized names map to the generic error code, matching how servers
// surface codes the client table does not know.
func RawCode(name string) int {
	codeNumbersOnce.Do(func() {
		codeNumbers = make(map[string]int, len(codeNames))
		for raw, n := range codeNames {
			codeNumbers[n] = raw
		}
	})
	if raw, ok := codeNumbers[name]; ok {
		return raw
	}
	var raw int
	if _, err := fmt.Sscanf(name, "UNKNOWN_SQLITE_ERROR_%d", &raw); err == nil {
		return raw
	}
	return codeError
}
