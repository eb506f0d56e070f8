package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// frameManager tracks a CrawlerTab's frame tree and exposes a
// Runtime.evaluate-based evaluation path distinct from Base.EvalExpression's
// callFunctionOn wrapper, per spec §4.6's crawler-specific init
// (Page.setLifecycleEventsEnabled, frame tree fetch) and §4.4's
// "expression-in-frame primitive with command-line API" fallback tier.
type frameManager struct {
	mu          sync.Mutex
	page        *rod.Page
	mainFrameID proto.FrameID
}

func newFrameManager() *frameManager {
	return &frameManager{}
}

// refresh enables lifecycle events and records the current main frame id.
// Called once from CrawlerTab.Init and again after every navigation, since
// a navigation can replace the frame tree.
func (fm *frameManager) refresh(page *rod.Page) error {
	if page == nil {
		return fmt.Errorf("tab: frame manager refresh called before page attach")
	}
	if err := (proto.PageSetLifecycleEventsEnabled{Enabled: true}).Call(page); err != nil {
		return fmt.Errorf("tab: enabling lifecycle events failed: %w", err)
	}
	tree, err := proto.PageGetFrameTree{}.Call(page)
	if err != nil {
		return fmt.Errorf("tab: fetching frame tree failed: %w", err)
	}

	fm.mu.Lock()
	fm.page = page
	fm.mainFrameID = tree.FrameTree.Frame.ID
	fm.mu.Unlock()
	return nil
}

// evalInPage evaluates js via Runtime.evaluate directly, with the
// command-line API enabled, rather than going through page.Eval's
// callFunctionOn wrapper. This gives CrawlerTab a genuinely distinct
// fallback evaluator for its tiered outlink read.
func (fm *frameManager) evalInPage(ctx context.Context, js string) ([]byte, error) {
	fm.mu.Lock()
	page := fm.page
	fm.mu.Unlock()
	if page == nil {
		return nil, fmt.Errorf("tab: frame manager has no attached page")
	}

	p := page.Context(ctx)
	res, err := (proto.RuntimeEvaluate{
		Expression:            js,
		IncludeCommandLineAPI: true,
		ReturnByValue:         true,
	}).Call(p)
	if err != nil {
		return nil, fmt.Errorf("tab: evaluate-in-frame failed: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("tab: evaluate-in-frame exception: %s", res.ExceptionDetails.Text)
	}

	raw, err := json.Marshal(res.Result.Value)
	if err != nil {
		return nil, fmt.Errorf("tab: encoding evaluate-in-frame result: %w", err)
	}
	return raw, nil
}
