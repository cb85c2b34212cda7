package config

type WorkerKeyStruct struct {
	PersistAttemptsQueue  string
	PersistBookmarksQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptsQueue:  "persist_attempts_queue",
	PersistBookmarksQueue: "persist_bookmarks_queue",
}
