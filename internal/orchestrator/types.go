package orchestrator

import (
	"github.com/foldermind/docindex/internal/async"
	"github.com/foldermind/docindex/internal/search"
)

// CommandType is the discriminator for the command surface (spec §6).
type CommandType string

const (
	CmdInit               CommandType = "init"
	CmdWatchStart         CommandType = "watchStart"
	CmdEnqueue            CommandType = "enqueue"
	CmdPause              CommandType = "pause"
	CmdResume             CommandType = "resume"
	CmdProgress           CommandType = "progress"
	CmdSearch             CommandType = "search"
	CmdStats              CommandType = "stats"
	CmdSearchFiles        CommandType = "searchFiles"
	CmdGetWatchedFolders  CommandType = "getWatchedFolders"
	CmdGetSettings        CommandType = "getSettings"
	CmdUpdateSettings     CommandType = "updateSettings"
	CmdReindexAll         CommandType = "reindexAll"
	CmdShutdown           CommandType = "shutdown"
	CmdRetry              CommandType = "retry"
)

// Command is the tagged-union request sent from the host shell to the core.
// Only the fields relevant to Type are populated.
type Command struct {
	Type CommandType `json:"type"`

	// init
	DataDir      string `json:"dataDir,omitempty"`
	UserDataPath string `json:"userDataPath,omitempty"`

	// watchStart
	Roots   []string `json:"roots,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	// enqueue
	Paths []string `json:"paths,omitempty"`

	// search
	Query string `json:"q,omitempty"`
	K     int    `json:"k,omitempty"`

	// searchFiles
	QuerySubstring string `json:"query,omitempty"`

	// updateSettings (partial)
	Settings map[string]any `json:"settings,omitempty"`
}

// EventType is the discriminator for emitted events (spec §6).
type EventType string

const (
	EventReady          EventType = "ready"
	EventFilesLoaded    EventType = "files:loaded"
	EventProgress       EventType = "progress"
	EventPipelineStatus EventType = "pipeline:status"
	EventStage          EventType = "stage"
	EventError          EventType = "error"
)

// Event is an asynchronous notification the Orchestrator pushes out,
// independent of any Dispatch call's response.
type Event struct {
	Type    EventType        `json:"type"`
	Stage   string           `json:"stage,omitempty"`
	Message string           `json:"message,omitempty"`
	Progress *ProgressSnapshot `json:"progress,omitempty"`
	Code    string           `json:"code,omitempty"`
	Details string           `json:"details,omitempty"`
}

// ProgressSnapshot answers the `progress` command.
type ProgressSnapshot struct {
	Queued      int  `json:"queued"`
	Processing  int  `json:"processing"`
	Done        int  `json:"done"`
	Errors      int  `json:"errors"`
	Paused      bool `json:"paused"`
	Initialized bool `json:"initialized"`

	// Scan reports the discovery-walk phase of the current or most recent
	// watchStart/reindexAll, nil before either has ever run.
	Scan *async.IndexProgressSnapshot `json:"scan,omitempty"`
}

// FolderStats is one entry of the `stats` response's per-folder breakdown.
type FolderStats struct {
	Folder        string `json:"folder"`
	TotalFiles    int    `json:"totalFiles"`
	IndexedFiles  int    `json:"indexedFiles"`
}

// StatsSnapshot answers the `stats` command.
type StatsSnapshot struct {
	TotalChunks  int           `json:"totalChunks"`
	IndexedFiles int           `json:"indexedFiles"`
	FolderStats  []FolderStats `json:"folderStats"`
}

// FileSummary is one entry of the `searchFiles` response.
type FileSummary struct {
	Path          string `json:"path"`
	Status        string `json:"status"`
	Chunks        int    `json:"chunks"`
	QueuePosition int    `json:"queuePosition,omitempty"`
	Error         string `json:"error,omitempty"`
	Modified      string `json:"modified,omitempty"`
}

// Response is the synchronous reply to a Dispatch call, paired 1:1 with the
// Command it answers. Only the fields relevant to the request's Type are
// populated.
type Response struct {
	Progress *ProgressSnapshot `json:"progress,omitempty"`
	Results  []search.Result   `json:"results,omitempty"`
	Stats    *StatsSnapshot    `json:"stats,omitempty"`
	Files    []FileSummary     `json:"files,omitempty"`
	Folders  []string          `json:"folders,omitempty"`
	Settings map[string]any    `json:"settings,omitempty"`
}
