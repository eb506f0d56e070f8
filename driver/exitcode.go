package driver

import "github.com/use-agent/autodriver/models"

// DetermineExitCode implements spec §4.8's determine_exit_code: a
// signal-driven shutdown always wins (1); otherwise 0 exit infos means a
// clean completion (0); exactly one exit info yields its own reason code;
// more than one yields the most-common reason code across all of them.
func DetermineExitCode(bySignal bool, exits []models.BrowserExitInfo) int {
	if bySignal {
		return 1
	}
	if len(exits) == 0 {
		return 0
	}
	if len(exits) == 1 {
		return exits[0].ExitReasonCode()
	}

	counts := make(map[int]int, len(exits))
	order := make([]int, 0, len(exits))
	for _, e := range exits {
		code := e.ExitReasonCode()
		if counts[code] == 0 {
			order = append(order, code)
		}
		counts[code]++
	}
	best := order[0]
	for _, c := range order[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}
