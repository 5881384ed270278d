package sqlinline

const QInsertProcessedEvent = `--sql df958069-5936-4cb4-88b3-f57824213541
insert into processed_events(event_id, event_name, resource_id, processed_at)
values ($1, $2, $3, $4)
on conflict (event_id) do nothing;
`

const QProcessedEventExists = `--sql 1c670487-f588-449e-8923-a099439623fa
select count(*)
from processed_events
where event_id = $1;
`

const QListProcessedEvents = `--sql d6cecacc-ecdb-4bb0-9dfa-fdb9bbe60bc7
select event_id, event_name, resource_id, processed_at
from processed_events
where processed_at >= $1
order by processed_at, event_id
limit $2;
`

const QInsertAudit = `--sql 1012ef53-e275-4ea2-93e8-cb90788d8c42
insert into audit_log(id, user_id, source, action, event_id, payload, created_at)
values ($1, nullif($2, ''), $3, $4, nullif($5, ''), $6, $7);
`

const QListAuditByEvent = `--sql 45f34b79-2309-4517-a30d-99e82dfe6b8b
select id, user_id, source, action, event_id, payload, created_at
from audit_log
where event_id = $1
order by id;
`
