package sqlinline

const QSelectConsumption = `--sql 9e902a7f-fba5-4f2c-8436-d1aec1bdc33b
select id, user_id, pool, status, created_at, refunded_at
from consumptions
where id = $1
for update;
`

const QInsertConsumption = `--sql 4dd8a0cf-98bf-48ec-ac63-144614fbbbcb
insert into consumptions(id, user_id, pool, status, created_at)
values ($1, $2, $3, $4, $5);
`

// QRefundConsumption only matches charged rows so a consumption is refunded
// at most once.
const QRefundConsumption = `--sql 8c651bd6-0f91-4dd1-8392-32679597e533
update consumptions
set status = 'refunded',
  refunded_at = $2
where id = $1
  and status = 'charged';
`
