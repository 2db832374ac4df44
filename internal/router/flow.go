package router

import (
	"context"
	"fmt"

	"github.com/mark3labs/flyt"
)

// stateKey is the shared-store key carrying the *TurnState through the
// flow.
const stateKey = "turn_state"

// Dispatch runs the two-node routing flow for one turn: a decider node
// classifies the turn and hands off to the skill node matching the
// chosen agent type, which merges its output into the state. The
// returned state is a superset of the input with messages extended and
// Response set. Persistence is the caller's job.
func (r *Router) Dispatch(ctx context.Context, state *TurnState) (*TurnState, error) {
	state = state.Clean()

	shared := flyt.NewSharedStore()
	shared.Set(stateKey, state)

	decide := &decideNode{BaseNode: flyt.NewBaseNode(), router: r}
	general := &skillNode{BaseNode: flyt.NewBaseNode(), router: r, agent: AgentGeneral}
	search := &skillNode{BaseNode: flyt.NewBaseNode(), router: r, agent: AgentInternetSearch}

	flow := flyt.NewFlow(decide)
	flow.Connect(decide, flyt.Action(AgentGeneral.String()), general)
	flow.Connect(decide, flyt.Action(AgentInternetSearch.String()), search)

	if err := flow.Run(ctx, shared); err != nil {
		return nil, err
	}

	return sharedState(shared)
}

// sharedState pulls the turn state back out of the flow's store.
func sharedState(shared *flyt.SharedStore) (*TurnState, error) {
	v, ok := shared.Get(stateKey)
	if !ok {
		return nil, fmt.Errorf("dispatch: turn state missing from shared store")
	}
	state, ok := v.(*TurnState)
	if !ok {
		return nil, fmt.Errorf("dispatch: unexpected turn state type %T", v)
	}
	return state, nil
}

// decideNode runs the classification call and emits the chosen agent
// type as the flow action.
type decideNode struct {
	*flyt.BaseNode
	router *Router
}

func (n *decideNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	return sharedState(shared)
}

func (n *decideNode) Exec(ctx context.Context, prepResult any) (any, error) {
	state := prepResult.(*TurnState)
	return n.router.Decide(ctx, state)
}

func (n *decideNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	agent := execResult.(AgentType)
	return flyt.Action(agent.String()), nil
}

// skillNode invokes one skill and merges its output into the shared
// turn state. It is the terminal node on both branches.
type skillNode struct {
	*flyt.BaseNode
	router *Router
	agent  AgentType
}

func (n *skillNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := sharedState(shared)
	if err != nil {
		return nil, err
	}
	return state.Question(), nil
}

func (n *skillNode) Exec(ctx context.Context, prepResult any) (any, error) {
	question := prepResult.(string)
	return n.router.skillFor(n.agent).Answer(ctx, question)
}

func (n *skillNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	state, err := sharedState(shared)
	if err != nil {
		return "", err
	}

	question := prepResult.(string)
	answer := execResult.(string)

	state.appendExchange(question, answer)
	state.Agent = n.agent.String()
	shared.Set(stateKey, state)

	return flyt.DefaultAction, nil
}
