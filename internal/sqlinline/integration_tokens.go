package sqlinline

const QSelectIntegrationToken = `--sql 54eff5fc-db6f-48f3-8b85-c3d3b13d531c
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 56ecedc9-03fe-421f-a003-82a76adb51e0
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql 9a6cfbdd-be84-49d0-9534-82b6a48f5f41
delete from integration_tokens
where provider = $1::text;
`
