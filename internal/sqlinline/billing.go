package sqlinline

const QSelectSubscriptionByUser = `--sql 69dcfecb-49ec-4967-b504-73a3fd044cc2
select user_id, external_subscription_id, variant_id, status, current_period_end, cancel_at_period_end, last_event_at, updated_at
from subscriptions
where user_id = $1
for update;
`

const QSelectSubscriptionByExternalID = `--sql 157407ed-7cc1-4f76-8a8c-aada843eb233
select user_id, external_subscription_id, variant_id, status, current_period_end, cancel_at_period_end, last_event_at, updated_at
from subscriptions
where external_subscription_id = $1
limit 1
for update;
`

const QUpsertSubscription = `--sql 6f09c07c-517d-4f5d-8c48-e8ee6d463bf9
insert into subscriptions(user_id, external_subscription_id, variant_id, status, current_period_end, cancel_at_period_end, last_event_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8)
on conflict (user_id) do update
set external_subscription_id = excluded.external_subscription_id,
  variant_id = excluded.variant_id,
  status = excluded.status,
  current_period_end = excluded.current_period_end,
  cancel_at_period_end = excluded.cancel_at_period_end,
  last_event_at = excluded.last_event_at,
  updated_at = excluded.updated_at;
`

const QSelectPurchaseByOrder = `--sql 6d3ce740-3241-46a0-b427-a05e01ed8794
select id, user_id, external_order_id, product_id, variant_id, credits_granted, amount_cents, currency, status, created_at, updated_at
from purchases
where external_order_id = $1
for update;
`

const QInsertPurchase = `--sql c4b3a9ef-29db-4dd7-836b-4f9d1251f600
insert into purchases(id, user_id, external_order_id, product_id, variant_id, credits_granted, amount_cents, currency, status, created_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`

const QUpdatePurchaseStatus = `--sql dbb48943-d06d-4232-bd52-7cc2854f6ce4
update purchases
set status = $2, updated_at = $3
where id = $1;
`
