package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				tasks JSONB NOT NULL DEFAULT '[]',
				triggers JSONB NOT NULL DEFAULT '[]',
				variables JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				status VARCHAR(32) NOT NULL,
				context JSONB NOT NULL DEFAULT '{}',
				tasks JSONB NOT NULL DEFAULT '{}',
				current_tasks JSONB NOT NULL DEFAULT '{}',
				completed_tasks JSONB NOT NULL DEFAULT '{}',
				failed_tasks JSONB NOT NULL DEFAULT '{}',
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_instances_workflow_id
				ON workflow_instances(workflow_id);
			CREATE INDEX IF NOT EXISTS idx_workflow_instances_status
				ON workflow_instances(status);
		`,
	}
}
