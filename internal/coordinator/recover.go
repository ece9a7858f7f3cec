// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coordinator

import (
	"context"
	"fmt"

	"github.com/a2awatch/reddit-watch/internal/model"
)

// RecoverFailedWorkflow loads a failed workflow and re-runs the pipeline
// (spec section 4.5 recovery entry point). Re-running is safe and resumes
// from "the first non-Completed stage" without separate bookkeeping:
// runStage's idempotent lookup (step a) returns each already-Completed
// stage's stored result_data instead of re-invoking the skill, so only
// the stage that actually failed (and anything after it) does real work.
func (c *Coordinator) RecoverFailedWorkflow(ctx context.Context, workflowID string, topics, subreddits []string) error {
	wf, err := c.workflows.Get(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}
	if wf.Status != model.TaskFailed {
		return fmt.Errorf("workflow %s is not in a failed state (status=%s)", workflowID, wf.Status)
	}
	return c.RunMonitoringCycle(ctx, workflowID, topics, subreddits)
}
