package remote

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/timer"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

// Command names understood on the control channel.
const (
	CommandStart           = "start"
	CommandSplit           = "split"
	CommandSplitOrStart    = "splitorstart"
	CommandReset           = "reset"
	CommandTogglePause     = "togglepause"
	CommandUndo            = "undo"
	CommandSkip            = "skip"
	CommandInitGameTime    = "initgametime"
	CommandSetGameTime     = "setgametime"
	CommandSetLoadingTimes = "setloadingtimes"
	CommandPauseGameTime   = "pausegametime"
	CommandResumeGameTime  = "resumegametime"
)

var simpleCommands = map[string]func(t *timer.Timer){
	CommandStart:          (*timer.Timer).Start,
	CommandSplit:          (*timer.Timer).Split,
	CommandSplitOrStart:   (*timer.Timer).SplitOrStart,
	CommandReset:          func(t *timer.Timer) { t.Reset(true) },
	CommandTogglePause:    (*timer.Timer).TogglePauseOrStart,
	CommandUndo:           (*timer.Timer).UndoSplit,
	CommandSkip:           (*timer.Timer).SkipSplit,
	CommandInitGameTime:   (*timer.Timer).InitializeGameTime,
	CommandPauseGameTime:  (*timer.Timer).PauseGameTime,
	CommandResumeGameTime: (*timer.Timer).ResumeGameTime,
}

var timeCommands = map[string]func(t *timer.Timer, v timespan.TimeSpan){
	CommandSetGameTime:     (*timer.Timer).SetGameTime,
	CommandSetLoadingTimes: (*timer.Timer).SetLoadingTimes,
}

// Commands lists every recognized command name.
func Commands() []string {
	return []string{
		CommandStart, CommandSplit, CommandSplitOrStart, CommandReset,
		CommandTogglePause, CommandUndo, CommandSkip, CommandInitGameTime,
		CommandSetGameTime, CommandSetLoadingTimes, CommandPauseGameTime,
		CommandResumeGameTime,
	}
}

// Dispatch parses one whitespace-delimited command line and applies it to
// the timer under exclusive access. It reports whether the line was a
// well-formed command. Unknown commands and malformed arguments are dropped.
func Dispatch(shared *timer.SharedTimer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]

	if op, ok := simpleCommands[name]; ok {
		shared.Write(op)
		return true
	}

	if op, ok := timeCommands[name]; ok {
		if len(args) == 0 {
			log.Debug().Str("command", name).Msg("dropping command without argument")
			return false
		}
		value, err := timespan.Parse(args[0])
		if err != nil {
			log.Debug().Err(err).Str("command", name).Str("arg", args[0]).Msg("dropping command with malformed argument")
			return false
		}
		shared.Write(func(t *timer.Timer) { op(t, value) })
		return true
	}

	log.Debug().Str("command", name).Msg("ignoring unknown command")
	return false
}
