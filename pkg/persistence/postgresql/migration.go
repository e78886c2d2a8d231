package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create pipelines table
			CREATE TABLE pipelines (
				id VARCHAR(255) PRIMARY KEY,
				slug VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'disabled')),
				repository JSONB NOT NULL,
				triggers JSONB NOT NULL DEFAULT '[]',
				matrix JSONB,
				steps JSONB NOT NULL DEFAULT '[]',
				env JSONB,
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_pipelines_slug ON pipelines(slug) WHERE deleted_at IS NULL;
			CREATE INDEX idx_pipelines_status ON pipelines(status);
			CREATE INDEX idx_pipelines_created_at ON pipelines(created_at);
			CREATE INDEX idx_pipelines_deleted_at ON pipelines(deleted_at);

			-- Create runs table
			CREATE TABLE runs (
				id VARCHAR(255) PRIMARY KEY,
				group_id VARCHAR(255) NOT NULL,
				pipeline_id VARCHAR(255) NOT NULL,
				trigger_id VARCHAR(255) NOT NULL DEFAULT '',
				instance JSONB,
				status VARCHAR(50) NOT NULL,
				reason VARCHAR(50) NOT NULL DEFAULT '',
				branch VARCHAR(255) NOT NULL DEFAULT '',
				commit_sha VARCHAR(255) NOT NULL DEFAULT '',
				event_data JSONB,
				steps JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_pipeline_id ON runs(pipeline_id);
			CREATE INDEX idx_runs_group_id ON runs(group_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_created_at ON runs(created_at);

			-- Create schedules table
			CREATE TABLE schedules (
				id VARCHAR(255) PRIMARY KEY,
				pipeline_id VARCHAR(255) NOT NULL,
				trigger_id VARCHAR(255) NOT NULL,
				cron_expr VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				next_due_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_schedules_pipeline_trigger ON schedules(pipeline_id, trigger_id);
			CREATE INDEX idx_schedules_next_due_at ON schedules(next_due_at);
		`,
	}
}
