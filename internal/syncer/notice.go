package syncer

import "fmt"

// Level grades a notice for presentation.
type Level string

const (
	LevelNone    Level = ""
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is the user facing summary of the queue state.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Queued  int    `json:"queued"`
}

func tickets(n int) string {
	if n == 1 {
		return "1 ticket"
	}
	return fmt.Sprintf("%d tickets", n)
}

func offlineNotice(queued int) Notice {
	return Notice{
		Level:   LevelWarning,
		Message: fmt.Sprintf("You are offline. %s saved on this device will sync when the connection returns.", tickets(queued)),
		Queued:  queued,
	}
}

func stillSyncingNotice(queued int) Notice {
	return Notice{
		Level:   LevelWarning,
		Message: fmt.Sprintf("Still syncing %s. The server may be waking up; we will keep trying.", tickets(queued)),
		Queued:  queued,
	}
}

func syncedNotice(synced int) Notice {
	return Notice{
		Level:   LevelInfo,
		Message: fmt.Sprintf("Synced %s saved while offline.", tickets(synced)),
	}
}

func blockedNotice(reason string, queued int) Notice {
	return Notice{
		Level:   LevelError,
		Message: fmt.Sprintf("A queued ticket was rejected by the server: %s Remove or fix it to continue syncing.", reason),
		Queued:  queued,
	}
}

func deadLetteredNotice(reason string, queued int) Notice {
	return Notice{
		Level:   LevelError,
		Message: fmt.Sprintf("A queued ticket was rejected by the server and set aside: %s", reason),
		Queued:  queued,
	}
}

func storeErrorNotice(queued int) Notice {
	return Notice{
		Level:   LevelError,
		Message: "Unable to read tickets saved on this device.",
		Queued:  queued,
	}
}

func setAsideNotice(n int) Notice {
	return Notice{
		Level:   LevelError,
		Message: fmt.Sprintf("%s rejected by the server need attention.", tickets(n)),
	}
}
