// Package sqlinline holds every SQL statement the service runs. Each one
// starts with a unique "--sql <uuid>" marker that SQLRunner logs and
// internal/tools/sqllint enforces.
package sqlinline

// QSelectIntegrationToken loads the stored API key for a provider.
const QSelectIntegrationToken = `--sql 8032f23b-e9c5-4927-820f-a68abe57de8b
select token
from integration_tokens
where provider = $1::text;
`

// QUpsertIntegrationToken stores or replaces a provider API key together with
// audit properties.
const QUpsertIntegrationToken = `--sql dd334ee4-0545-41d0-9718-effea26c79dd
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update
set token      = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
