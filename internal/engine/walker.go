package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
)

// walker executes one graph node by node. Nested workflow nodes call back
// into RunSub, which starts a child walker one level deeper.
type walker struct {
	eng   *Engine
	rec   *Recorder
	runID string
	depth int
}

func (w *walker) walk(ctx context.Context, g *Graph, scope *expressions.Scope) error {
	name := g.Workflow.Name
	fsm := newWalkerFSM(w.eng.hub, w.runID, name)

	for i := 0; i != Done; {
		node := g.At(i)

		if err := ctx.Err(); err != nil {
			_ = fsm.Transition(ctx, WalkerDone, node.ID)
			return schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithNode(node.ID).WithCause(err)
		}
		if err := fsm.Transition(ctx, WalkerExecuting, node.ID); err != nil {
			return err
		}

		step := w.rec.Open(ctx, node, name)
		out, err := w.eng.dispatcher.Dispatch(ctx, node, scope, w)
		if err != nil {
			status := schema.StepStatusError
			if schema.CodeOf(err) == schema.ErrCodeUserCancelled {
				status = schema.StepStatusSkipped
			}
			if cerr := w.rec.Close(ctx, step, status, nil, nil, errorMessage(err)); cerr != nil {
				return cerr
			}
			_ = fsm.Transition(ctx, WalkerDone, node.ID)
			return err
		}
		if err := w.rec.Close(ctx, step, out.Status, out.Input, out.Output, out.Err); err != nil {
			return err
		}

		if node.Type.IsBranch() {
			if err := fsm.Transition(ctx, WalkerBranched, node.ID); err != nil {
				return err
			}
			_ = w.eng.hub.Publish(ctx, streaming.StreamEvent{
				RunID:     w.runID,
				NodeID:    node.ID,
				Workflow:  name,
				EventType: schema.EventConditionEvaluated,
				Payload:   map[string]any{"result": out.Branch != nil && *out.Branch, "input": out.Input},
			})
		}

		i = g.Next(i, out.Branch, out.Status)
		next := WalkerReady
		if i == Done {
			next = WalkerDone
		}
		if err := fsm.Transition(ctx, next, node.ID); err != nil {
			return err
		}
	}
	return nil
}

// RunSub walks a nested workflow against scope. Unless isolated, its steps
// are appended to the caller's record.
func (w *walker) RunSub(ctx context.Context, wf *schema.Workflow, scope *expressions.Scope, isolated bool) error {
	if w.depth+1 > w.eng.cfg.MaxDepth {
		return schema.NewErrorf(schema.ErrCodeExecution, "workflow nesting exceeds %d levels", w.eng.cfg.MaxDepth)
	}
	g, err := BuildGraph(wf)
	if err != nil {
		return err
	}

	child := &walker{eng: w.eng, rec: w.rec, runID: w.runID, depth: w.depth + 1}
	if isolated {
		child.rec = w.rec.Isolated(wf.Name)
	}

	parentNode := logging.NodeIDFrom(ctx)
	ctx = logging.WithWorkflow(ctx, wf.Name)
	_ = w.eng.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     w.runID,
		NodeID:    parentNode,
		Workflow:  wf.Name,
		EventType: schema.EventSubWorkflowEntered,
		Payload:   map[string]any{"depth": child.depth, "scoped": isolated},
	})
	w.eng.logger.DebugContext(ctx, "entering sub-workflow", slog.Int("depth", child.depth), slog.Bool("scoped", isolated))

	err = child.walk(ctx, g, scope)

	_ = w.eng.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     w.runID,
		NodeID:    parentNode,
		Workflow:  wf.Name,
		EventType: schema.EventSubWorkflowExited,
		Payload:   map[string]any{"depth": child.depth, "status": runStatusFor(err)},
	})
	return err
}

func errorMessage(err error) string {
	var se *schema.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
